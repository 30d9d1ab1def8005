package v1alpha1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestKnowledgeRollbackPhase(t *testing.T) {
	tests := []struct {
		name  string
		phase KnowledgeRollbackPhase
		valid bool
	}{
		{"pending phase", KnowledgeRollbackPhasePending, true},
		{"rolled back phase", KnowledgeRollbackPhaseRolledBack, true},
		{"failed phase", KnowledgeRollbackPhaseFailed, true},
		{"invalid phase", KnowledgeRollbackPhase("Invalid"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validPhases := map[KnowledgeRollbackPhase]bool{
				KnowledgeRollbackPhasePending:    true,
				KnowledgeRollbackPhaseRolledBack: true,
				KnowledgeRollbackPhaseFailed:     true,
			}
			assert.Equal(t, tt.valid, validPhases[tt.phase])
		})
	}
}

func TestKnowledgeRollbackTerminal(t *testing.T) {
	rollback := &KnowledgeRollback{}
	assert.False(t, rollback.Terminal())

	rollback.Status.Phase = KnowledgeRollbackPhaseRolledBack
	assert.True(t, rollback.Terminal())

	rollback.Status.Phase = KnowledgeRollbackPhaseFailed
	assert.True(t, rollback.Terminal())
}

func TestKnowledgeRollbackConditions(t *testing.T) {
	rollback := &KnowledgeRollback{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "revert-indicators",
			Namespace: "default",
		},
	}

	now := metav1.Now()
	doneCondition := metav1.Condition{
		Type:               "RolledBack",
		Status:             metav1.ConditionTrue,
		LastTransitionTime: now,
		Reason:             "PriorVersionRestored",
		Message:            "indicators restored to i-43",
	}

	rollback.SetConditions(doneCondition)

	got := rollback.GetCondition("RolledBack")
	assert.NotNil(t, got)
	assert.Equal(t, "PriorVersionRestored", got.Reason)

	assert.Nil(t, rollback.GetCondition("Missing"))
}

func TestKnowledgeRollbackDeepCopy(t *testing.T) {
	rollback := &KnowledgeRollback{
		ObjectMeta: metav1.ObjectMeta{Name: "revert-all"},
		Spec: KnowledgeRollbackSpec{
			StateDir:  "/var/lib/quorum",
			StoreKind: RollbackAllKinds,
			Actor:     "quorum-operator",
		},
		Status: KnowledgeRollbackStatus{
			Phase:    KnowledgeRollbackPhaseRolledBack,
			Restored: map[string]string{"rules": "r-7"},
		},
	}

	clone := rollback.DeepCopy()
	assert.Equal(t, rollback.Spec, clone.Spec)

	clone.Status.Restored["rules"] = "r-8"
	assert.Equal(t, "r-7", rollback.Status.Restored["rules"])
}
