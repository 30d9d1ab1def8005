package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// DeepCopy implements the DeepCopy method for KnowledgeRollback
func (in *KnowledgeRollback) DeepCopy() *KnowledgeRollback {
	if in == nil {
		return nil
	}
	out := new(KnowledgeRollback)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto implements the DeepCopyInto method for KnowledgeRollback
func (in *KnowledgeRollback) DeepCopyInto(out *KnowledgeRollback) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = in.Spec
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopyObject implements the DeepCopyObject method for KnowledgeRollback
func (in *KnowledgeRollback) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

// DeepCopy implements the DeepCopy method for KnowledgeRollbackList
func (in *KnowledgeRollbackList) DeepCopy() *KnowledgeRollbackList {
	if in == nil {
		return nil
	}
	out := new(KnowledgeRollbackList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto implements the DeepCopyInto method for KnowledgeRollbackList
func (in *KnowledgeRollbackList) DeepCopyInto(out *KnowledgeRollbackList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		in, out := &in.Items, &out.Items
		*out = make([]KnowledgeRollback, len(*in))
		for i := range *in {
			(*in)[i].DeepCopyInto(&(*out)[i])
		}
	}
}

// DeepCopyObject implements the DeepCopyObject method for KnowledgeRollbackList
func (in *KnowledgeRollbackList) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

// DeepCopy implements the DeepCopy method for KnowledgeRollbackSpec
func (in *KnowledgeRollbackSpec) DeepCopy() *KnowledgeRollbackSpec {
	if in == nil {
		return nil
	}
	out := new(KnowledgeRollbackSpec)
	*out = *in
	return out
}

// DeepCopy implements the DeepCopy method for KnowledgeRollbackStatus
func (in *KnowledgeRollbackStatus) DeepCopy() *KnowledgeRollbackStatus {
	if in == nil {
		return nil
	}
	out := new(KnowledgeRollbackStatus)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto implements the DeepCopyInto method for KnowledgeRollbackStatus
func (in *KnowledgeRollbackStatus) DeepCopyInto(out *KnowledgeRollbackStatus) {
	*out = *in
	if in.Restored != nil {
		in, out := &in.Restored, &out.Restored
		*out = make(map[string]string, len(*in))
		for key, val := range *in {
			(*out)[key] = val
		}
	}
	if in.CompletedAt != nil {
		in, out := &in.CompletedAt, &out.CompletedAt
		*out = (*in).DeepCopy()
	}
	if in.Conditions != nil {
		in, out := &in.Conditions, &out.Conditions
		*out = make([]metav1.Condition, len(*in))
		for i := range *in {
			(*in)[i].DeepCopyInto(&(*out)[i])
		}
	}
}
