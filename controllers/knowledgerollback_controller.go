package controllers

import (
	"context"
	"fmt"
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

const rollbackRequeueOnNotReady = 15 * time.Second

// KnowledgeRollbackReconciler restores retained store versions on an
// appliance state directory mounted into the operator pod.
type KnowledgeRollbackReconciler struct {
	client.Client
	Scheme *runtime.Scheme
}

// +kubebuilder:rbac:groups=quorum.io,resources=knowledgerollbacks,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=quorum.io,resources=knowledgerollbacks/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=core,resources=events,verbs=create;patch

// Reconcile is the main reconciliation loop for KnowledgeRollback resources
func (r *KnowledgeRollbackReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	rollback := &quorumv1alpha1.KnowledgeRollback{}
	err := r.Get(ctx, req.NamespacedName, rollback)
	if err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	// Rollback is idempotent on the appliance side, so a crashed
	// reconcile simply runs again; once a terminal phase is recorded
	// the resource is inert.
	if rollback.Terminal() {
		return ctrl.Result{}, nil
	}

	kind := rollback.Spec.StoreKind
	if kind != quorumv1alpha1.RollbackAllKinds && !model.StoreKind(kind).Valid() {
		r.finish(ctx, rollback, quorumv1alpha1.KnowledgeRollbackPhaseFailed,
			fmt.Sprintf("Unknown store kind %q", kind), nil)
		return ctrl.Result{}, nil
	}
	if kind == quorumv1alpha1.RollbackAllKinds && rollback.Spec.TargetVersion != "" {
		r.finish(ctx, rollback, quorumv1alpha1.KnowledgeRollbackPhaseFailed,
			"targetVersion requires a single store kind", nil)
		return ctrl.Result{}, nil
	}

	return r.run(ctx, rollback)
}

// run executes the rollback against the appliance
func (r *KnowledgeRollbackReconciler) run(ctx context.Context, rollback *quorumv1alpha1.KnowledgeRollback) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	appliance, err := quorum.Open(rollback.Spec.StateDir)
	if err != nil {
		r.updateStatus(ctx, rollback, quorumv1alpha1.KnowledgeRollbackPhasePending,
			fmt.Sprintf("Waiting for state directory: %s", err))
		return ctrl.Result{RequeueAfter: rollbackRequeueOnNotReady}, nil
	}
	defer appliance.Close()

	actor := rollback.Spec.Actor
	if actor == "" {
		actor = defaultOperatorActor
	}

	var results []*model.RollbackResult
	if rollback.Spec.StoreKind == quorumv1alpha1.RollbackAllKinds {
		results, err = appliance.RollbackAll(ctx, actor)
	} else {
		var res *model.RollbackResult
		res, err = appliance.Rollback(ctx, model.StoreKind(rollback.Spec.StoreKind), rollback.Spec.TargetVersion, actor)
		if res != nil {
			results = []*model.RollbackResult{res}
		}
	}
	if err != nil {
		logger.Error(err, "Rollback failed")
		r.finish(ctx, rollback, quorumv1alpha1.KnowledgeRollbackPhaseFailed, err.Error(), nil)
		return ctrl.Result{}, nil
	}

	restored := make(map[string]string, len(results))
	for _, res := range results {
		if !res.NoOp {
			restored[string(res.Kind)] = res.Restored
		}
	}
	message := fmt.Sprintf("Restored %d store kind(s)", len(restored))
	if len(restored) == 0 {
		message = "Nothing to restore; already at the rollback target"
	}
	r.finish(ctx, rollback, quorumv1alpha1.KnowledgeRollbackPhaseRolledBack, message, restored)
	return ctrl.Result{}, nil
}

// finish records the terminal phase of the rollback
func (r *KnowledgeRollbackReconciler) finish(ctx context.Context, rollback *quorumv1alpha1.KnowledgeRollback, phase quorumv1alpha1.KnowledgeRollbackPhase, message string, restored map[string]string) {
	now := metav1.Now()
	rollback.Status.Phase = phase
	rollback.Status.Message = message
	rollback.Status.Restored = restored
	rollback.Status.CompletedAt = &now

	status := metav1.ConditionTrue
	reason := "PriorVersionRestored"
	if phase == quorumv1alpha1.KnowledgeRollbackPhaseFailed {
		status = metav1.ConditionFalse
		reason = "RollbackFailed"
	}
	rollback.SetConditions(metav1.Condition{
		Type:               "RolledBack",
		Status:             status,
		LastTransitionTime: now,
		Reason:             reason,
		Message:            message,
	})
	r.Status().Update(ctx, rollback)
}

// updateStatus updates the rollback status
func (r *KnowledgeRollbackReconciler) updateStatus(ctx context.Context, rollback *quorumv1alpha1.KnowledgeRollback, phase quorumv1alpha1.KnowledgeRollbackPhase, message string) {
	rollback.Status.Phase = phase
	rollback.Status.Message = message
	r.Status().Update(ctx, rollback)
}

// SetupWithManager sets up the controller with the Manager
func (r *KnowledgeRollbackReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&quorumv1alpha1.KnowledgeRollback{}).
		Complete(r)
}
