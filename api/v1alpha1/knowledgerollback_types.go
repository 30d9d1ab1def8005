package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// RollbackAllKinds is the StoreKind value that rolls back every store.
const RollbackAllKinds = "all"

// KnowledgeRollbackSpec defines the desired state of KnowledgeRollback
type KnowledgeRollbackSpec struct {
	// StateDir is the path to the appliance state directory on a
	// mounted volume
	StateDir string `json:"stateDir"`

	// StoreKind is the store to roll back (indicators, patterns,
	// rules, anomaly_model) or "all" for every kind
	StoreKind string `json:"storeKind"`

	// TargetVersion restores a specific retained version instead of
	// the previously active one. Only valid for a single kind.
	// +optional
	TargetVersion string `json:"targetVersion,omitempty"`

	// Actor is recorded in the appliance audit trail
	// +optional
	// +kubebuilder:default="quorum-operator"
	Actor string `json:"actor,omitempty"`
}

// KnowledgeRollbackStatus defines the observed state of KnowledgeRollback
type KnowledgeRollbackStatus struct {
	// Phase is the current phase of the rollback
	// +optional
	Phase KnowledgeRollbackPhase `json:"phase,omitempty"`

	// Message provides human-readable status information
	// +optional
	Message string `json:"message,omitempty"`

	// Restored maps each rolled-back store kind to the version now active
	// +optional
	Restored map[string]string `json:"restored,omitempty"`

	// CompletedAt is when the rollback reached a terminal state
	// +optional
	CompletedAt *metav1.Time `json:"completedAt,omitempty"`

	// Conditions represent the latest available observations
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// KnowledgeRollbackPhase represents the lifecycle phase of a rollback
// +kubebuilder:validation:Enum=Pending;RolledBack;Failed
type KnowledgeRollbackPhase string

const (
	// KnowledgeRollbackPhasePending means the rollback has not run yet
	KnowledgeRollbackPhasePending KnowledgeRollbackPhase = "Pending"

	// KnowledgeRollbackPhaseRolledBack means the restore completed
	KnowledgeRollbackPhaseRolledBack KnowledgeRollbackPhase = "RolledBack"

	// KnowledgeRollbackPhaseFailed means the rollback could not run
	KnowledgeRollbackPhaseFailed KnowledgeRollbackPhase = "Failed"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=krb
// +kubebuilder:printcolumn:name="Kind",type=string,JSONPath=`.spec.storeKind`
// +kubebuilder:printcolumn:name="Status",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
// +genclient

// KnowledgeRollback is the Schema for the knowledgerollbacks API
type KnowledgeRollback struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KnowledgeRollbackSpec   `json:"spec,omitempty"`
	Status KnowledgeRollbackStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// KnowledgeRollbackList contains a list of KnowledgeRollback
type KnowledgeRollbackList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KnowledgeRollback `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KnowledgeRollback{}, &KnowledgeRollbackList{})
}

// SetConditions sets the conditions on the rollback status
func (r *KnowledgeRollback) SetConditions(conditions ...metav1.Condition) {
	r.Status.Conditions = conditions
}

// GetCondition returns the condition with the given type
func (r *KnowledgeRollback) GetCondition(conditionType string) *metav1.Condition {
	for i := range r.Status.Conditions {
		if r.Status.Conditions[i].Type == conditionType {
			return &r.Status.Conditions[i]
		}
	}
	return nil
}

// Terminal reports whether the rollback reached a final phase.
func (r *KnowledgeRollback) Terminal() bool {
	return r.Status.Phase == KnowledgeRollbackPhaseRolledBack ||
		r.Status.Phase == KnowledgeRollbackPhaseFailed
}
