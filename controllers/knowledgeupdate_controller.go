package controllers

import (
	"context"
	"fmt"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	quorumv1alpha1 "github.com/quorum-project/quorum/api/v1alpha1"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/quorum"
)

const (
	updateRequeueOnNotReady = 15 * time.Second
	defaultOperatorActor    = "quorum-operator"
)

// KnowledgeUpdateReconciler drives a signed update package through the
// appliance pipeline. The package and the state directory both live on
// volumes mounted into the operator pod; nothing is fetched over the
// network.
type KnowledgeUpdateReconciler struct {
	client.Client
	Scheme *runtime.Scheme
}

// +kubebuilder:rbac:groups=quorum.io,resources=knowledgeupdates,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=quorum.io,resources=knowledgeupdates/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=core,resources=events,verbs=create;patch

// Reconcile is the main reconciliation loop for KnowledgeUpdate resources
func (r *KnowledgeUpdateReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	update := &quorumv1alpha1.KnowledgeUpdate{}
	err := r.Get(ctx, req.NamespacedName, update)
	if err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	// A submitted package reaches exactly one terminal state and is
	// never retried by the controller: a failed attempt means the
	// package itself is bad, and deleting the resource does not undo a
	// committed update. No finalizer is needed.
	if update.Terminal() {
		return ctrl.Result{}, nil
	}

	switch update.Status.Phase {
	case "":
		fallthrough
	case quorumv1alpha1.KnowledgeUpdatePhasePending:
		return r.submit(ctx, update)
	case quorumv1alpha1.KnowledgeUpdatePhaseSubmitted:
		// A previous reconcile crashed mid-submission. The appliance
		// serializes attempts per store kind and records every outcome
		// in its audit trail, so resubmitting the same package is safe:
		// it either commits or is rejected with a definite reason.
		return r.submit(ctx, update)
	}

	return ctrl.Result{}, nil
}

// submit pushes the package through the appliance update pipeline
func (r *KnowledgeUpdateReconciler) submit(ctx context.Context, update *quorumv1alpha1.KnowledgeUpdate) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	if _, err := os.Stat(update.Spec.PackagePath); err != nil {
		// The removable-media volume may not be mounted yet.
		r.updateStatus(ctx, update, quorumv1alpha1.KnowledgeUpdatePhasePending,
			fmt.Sprintf("Waiting for package: %s", err))
		return ctrl.Result{RequeueAfter: updateRequeueOnNotReady}, nil
	}

	appliance, err := quorum.Open(update.Spec.StateDir)
	if err != nil {
		r.updateStatus(ctx, update, quorumv1alpha1.KnowledgeUpdatePhasePending,
			fmt.Sprintf("Waiting for state directory: %s", err))
		return ctrl.Result{RequeueAfter: updateRequeueOnNotReady}, nil
	}
	defer appliance.Close()

	now := metav1.Now()
	update.Status.Phase = quorumv1alpha1.KnowledgeUpdatePhaseSubmitted
	update.Status.Message = "Package submitted"
	update.Status.SubmittedAt = &now
	if err := r.Status().Update(ctx, update); err != nil {
		return ctrl.Result{}, err
	}

	result, submitErr := appliance.SubmitFile(ctx, update.Spec.PackagePath, r.actor(update))
	if result == nil {
		// The pipeline never ran (e.g. the package file vanished);
		// nothing was audited, so surface the error and retry.
		logger.Error(submitErr, "Failed to submit package")
		r.updateStatus(ctx, update, quorumv1alpha1.KnowledgeUpdatePhasePending,
			fmt.Sprintf("Submission error: %s", submitErr))
		return ctrl.Result{RequeueAfter: updateRequeueOnNotReady}, nil
	}

	update.Status.AttemptID = result.AttemptID.String()
	update.Status.PackageVersion = result.PackageVersion
	completed := metav1.Now()
	update.Status.CompletedAt = &completed

	if result.State == model.AttemptCommitted {
		update.Status.Phase = quorumv1alpha1.KnowledgeUpdatePhaseCommitted
		update.Status.Message = "All store kinds swapped to the packaged versions"
		update.Status.Versions = make(map[string]string, len(result.Committed))
		for kind, version := range result.Committed {
			update.Status.Versions[string(kind)] = version
		}
		update.SetConditions(metav1.Condition{
			Type:               "Committed",
			Status:             metav1.ConditionTrue,
			LastTransitionTime: completed,
			Reason:             "PackageCommitted",
			Message:            update.Status.Message,
		})
		return ctrl.Result{}, r.Status().Update(ctx, update)
	}

	logger.Info("Package rejected", "class", result.FailureClass, "reason", result.Reason)
	update.Status.Phase = quorumv1alpha1.KnowledgeUpdatePhaseFailed
	update.Status.FailureClass = result.FailureClass
	update.Status.Message = result.Reason
	update.SetConditions(metav1.Condition{
		Type:               "Committed",
		Status:             metav1.ConditionFalse,
		LastTransitionTime: completed,
		Reason:             "PackageRejected",
		Message:            result.Reason,
	})
	return ctrl.Result{}, r.Status().Update(ctx, update)
}

// actor returns the audit actor recorded for this update
func (r *KnowledgeUpdateReconciler) actor(update *quorumv1alpha1.KnowledgeUpdate) string {
	if update.Spec.Actor != "" {
		return update.Spec.Actor
	}
	return defaultOperatorActor
}

// updateStatus updates the update status
func (r *KnowledgeUpdateReconciler) updateStatus(ctx context.Context, update *quorumv1alpha1.KnowledgeUpdate, phase quorumv1alpha1.KnowledgeUpdatePhase, message string) {
	update.Status.Phase = phase
	update.Status.Message = message
	r.Status().Update(ctx, update)
}

// SetupWithManager sets up the controller with the Manager
func (r *KnowledgeUpdateReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&quorumv1alpha1.KnowledgeUpdate{}).
		Complete(r)
}
