package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// DeepCopy implements the DeepCopy method for KnowledgeUpdate
func (in *KnowledgeUpdate) DeepCopy() *KnowledgeUpdate {
	if in == nil {
		return nil
	}
	out := new(KnowledgeUpdate)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto implements the DeepCopyInto method for KnowledgeUpdate
func (in *KnowledgeUpdate) DeepCopyInto(out *KnowledgeUpdate) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = in.Spec
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopyObject implements the DeepCopyObject method for KnowledgeUpdate
func (in *KnowledgeUpdate) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

// DeepCopy implements the DeepCopy method for KnowledgeUpdateList
func (in *KnowledgeUpdateList) DeepCopy() *KnowledgeUpdateList {
	if in == nil {
		return nil
	}
	out := new(KnowledgeUpdateList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto implements the DeepCopyInto method for KnowledgeUpdateList
func (in *KnowledgeUpdateList) DeepCopyInto(out *KnowledgeUpdateList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		in, out := &in.Items, &out.Items
		*out = make([]KnowledgeUpdate, len(*in))
		for i := range *in {
			(*in)[i].DeepCopyInto(&(*out)[i])
		}
	}
}

// DeepCopyObject implements the DeepCopyObject method for KnowledgeUpdateList
func (in *KnowledgeUpdateList) DeepCopyObject() runtime.Object {
	return in.DeepCopy()
}

// DeepCopy implements the DeepCopy method for KnowledgeUpdateSpec
func (in *KnowledgeUpdateSpec) DeepCopy() *KnowledgeUpdateSpec {
	if in == nil {
		return nil
	}
	out := new(KnowledgeUpdateSpec)
	*out = *in
	return out
}

// DeepCopy implements the DeepCopy method for KnowledgeUpdateStatus
func (in *KnowledgeUpdateStatus) DeepCopy() *KnowledgeUpdateStatus {
	if in == nil {
		return nil
	}
	out := new(KnowledgeUpdateStatus)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto implements the DeepCopyInto method for KnowledgeUpdateStatus
func (in *KnowledgeUpdateStatus) DeepCopyInto(out *KnowledgeUpdateStatus) {
	*out = *in
	if in.Versions != nil {
		in, out := &in.Versions, &out.Versions
		*out = make(map[string]string, len(*in))
		for key, val := range *in {
			(*out)[key] = val
		}
	}
	if in.SubmittedAt != nil {
		in, out := &in.SubmittedAt, &out.SubmittedAt
		*out = (*in).DeepCopy()
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
