package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/domain"
)

func TestStrictPolicy_DeclaredEdges(t *testing.T) {
	tests := []struct {
		from domain.Status
		to   domain.Status
		want bool
	}{
		{domain.StatusPending, domain.StatusConfirmed, true},
		{domain.StatusPending, domain.StatusAutoDeclined, true},
		{domain.StatusPending, domain.StatusArrived, false},
		{domain.StatusConfirmed, domain.StatusArrived, true},
		{domain.StatusConfirmed, domain.StatusNoShow, true},
		{domain.StatusConfirmed, domain.StatusSeated, false},
		{domain.StatusArrived, domain.StatusSeated, true},
		{domain.StatusSeated, domain.StatusOrdered, true},
		{domain.StatusSeated, domain.StatusCompleted, false},
		{domain.StatusMainCourse, domain.StatusDessert, true},
		{domain.StatusMainCourse, domain.StatusPayment, true},
		{domain.StatusDessert, domain.StatusPayment, true},
		{domain.StatusPayment, domain.StatusCompleted, true},
		{domain.StatusCompleted, domain.StatusSeated, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, StrictPolicy{}.Allowed(tt.from, tt.to))
		})
	}
}

func TestStrictPolicy_TerminalsHaveNoEdges(t *testing.T) {
	for _, from := range domain.AllStatuses {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range domain.AllStatuses {
			assert.False(t, StrictPolicy{}.Allowed(from, to), "%s -> %s", from, to)
		}
		assert.Empty(t, StrictPolicy{}.Edges(from))
	}
}

// Override succeeds iff to is non-terminal (from non-terminal), or to is a
// revert target (from terminal).
func TestOverridePolicy_Soundness(t *testing.T) {
	reverts := map[domain.Status]bool{
		domain.StatusPending:   true,
		domain.StatusConfirmed: true,
		domain.StatusArrived:   true,
		domain.StatusSeated:    true,
	}
	for _, from := range domain.AllStatuses {
		for _, to := range domain.AllStatuses {
			var want bool
			if from.IsTerminal() {
				want = reverts[to]
			} else {
				want = !to.IsTerminal()
			}
			assert.Equal(t, want, OverridePolicy{}.Allowed(from, to), "%s -> %s", from, to)
		}
	}
}

func TestOverridePolicy_RejectsUnknownStatus(t *testing.T) {
	assert.False(t, OverridePolicy{}.Allowed("bogus", domain.StatusSeated))
	assert.False(t, OverridePolicy{}.Allowed(domain.StatusSeated, "bogus"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, m)

	m, err = ParseMode("override")
	require.NoError(t, err)
	assert.Equal(t, ModeOverride, m)

	_, err = ParseMode("yolo")
	assert.Error(t, err)
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, "strict", PolicyFor(ModeStrict).Name())
	assert.Equal(t, "override", PolicyFor(ModeOverride).Name())
	assert.Equal(t, "strict", PolicyFor("").Name())
}
