package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// KnowledgeUpdateSpec defines the desired state of KnowledgeUpdate
type KnowledgeUpdateSpec struct {
	// StateDir is the path to the appliance state directory on a
	// mounted volume
	StateDir string `json:"stateDir"`

	// PackagePath is the path to the signed update package on a
	// mounted volume
	PackagePath string `json:"packagePath"`

	// Actor is recorded in the appliance audit trail
	// +optional
	// +kubebuilder:default="quorum-operator"
	Actor string `json:"actor,omitempty"`
}

// KnowledgeUpdateStatus defines the observed state of KnowledgeUpdate
type KnowledgeUpdateStatus struct {
	// Phase is the current phase of the update
	// +optional
	Phase KnowledgeUpdatePhase `json:"phase,omitempty"`

	// Message provides human-readable status information
	// +optional
	Message string `json:"message,omitempty"`

	// AttemptID is the appliance-assigned update attempt identifier
	// +optional
	AttemptID string `json:"attemptID,omitempty"`

	// PackageVersion is the version declared by the package manifest
	// +optional
	PackageVersion string `json:"packageVersion,omitempty"`

	// Versions maps each committed store kind to its new version
	// +optional
	Versions map[string]string `json:"versions,omitempty"`

	// FailureClass is the appliance error code when the update failed
	// +optional
	FailureClass string `json:"failureClass,omitempty"`

	// SubmittedAt is when the package entered the pipeline
	// +optional
	SubmittedAt *metav1.Time `json:"submittedAt,omitempty"`

	// CompletedAt is when the attempt reached a terminal state
	// +optional
	CompletedAt *metav1.Time `json:"completedAt,omitempty"`

	// Conditions represent the latest available observations
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// KnowledgeUpdatePhase represents the lifecycle phase of an update
// +kubebuilder:validation:Enum=Pending;Submitted;Committed;Failed
type KnowledgeUpdatePhase string

const (
	// KnowledgeUpdatePhasePending means the update has not been submitted yet
	KnowledgeUpdatePhasePending KnowledgeUpdatePhase = "Pending"

	// KnowledgeUpdatePhaseSubmitted means the package is in the pipeline
	KnowledgeUpdatePhaseSubmitted KnowledgeUpdatePhase = "Submitted"

	// KnowledgeUpdatePhaseCommitted means every store kind in the package is active
	KnowledgeUpdatePhaseCommitted KnowledgeUpdatePhase = "Committed"

	// KnowledgeUpdatePhaseFailed means the package was rejected; no store changed
	KnowledgeUpdatePhaseFailed KnowledgeUpdatePhase = "Failed"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=kup
// +kubebuilder:printcolumn:name="Package",type=string,JSONPath=`.status.packageVersion`
// +kubebuilder:printcolumn:name="Status",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Attempt",type=string,JSONPath=`.status.attemptID`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
// +genclient

// KnowledgeUpdate is the Schema for the knowledgeupdates API
type KnowledgeUpdate struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KnowledgeUpdateSpec   `json:"spec,omitempty"`
	Status KnowledgeUpdateStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// KnowledgeUpdateList contains a list of KnowledgeUpdate
type KnowledgeUpdateList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KnowledgeUpdate `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KnowledgeUpdate{}, &KnowledgeUpdateList{})
}

// SetConditions sets the conditions on the update status
func (u *KnowledgeUpdate) SetConditions(conditions ...metav1.Condition) {
	u.Status.Conditions = conditions
}

// GetCondition returns the condition with the given type
func (u *KnowledgeUpdate) GetCondition(conditionType string) *metav1.Condition {
	for i := range u.Status.Conditions {
		if u.Status.Conditions[i].Type == conditionType {
			return &u.Status.Conditions[i]
		}
	}
	return nil
}

// Terminal reports whether the update reached a final phase.
func (u *KnowledgeUpdate) Terminal() bool {
	return u.Status.Phase == KnowledgeUpdatePhaseCommitted ||
		u.Status.Phase == KnowledgeUpdatePhaseFailed
}
