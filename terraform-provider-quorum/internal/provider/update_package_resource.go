package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// NewUpdatePackageResource creates a new update package resource
func NewUpdatePackageResource() resource.Resource {
	return &updatePackageResource{}
}

type updatePackageResource struct {
	data *providerData
}

func (r *updatePackageResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = "quorum_update_package"
}

func (r *updatePackageResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}
	r.data = req.ProviderData.(*providerData)
}

func (r *updatePackageResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Submits a signed update package to a Quorum appliance. The submission is atomic: either every store kind in the package commits or none does.",

		Attributes: map[string]schema.Attribute{
			"appliance_path": schema.StringAttribute{
				Required:    true,
				Description: "Directory containing the appliance .quorum state directory.",
			},
			"package_path": schema.StringAttribute{
				Required:    true,
				Description: "Path to the signed .qup package file.",
			},
			"id": schema.StringAttribute{
				Computed:    true,
				Description: "Update attempt ID assigned by the appliance.",
			},
			"package_version": schema.StringAttribute{
				Computed:    true,
				Description: "Package version declared by the manifest.",
			},
			"state": schema.StringAttribute{
				Computed:    true,
				Description: "Final attempt state (COMMITTED on success).",
			},
			"committed": schema.MapAttribute{
				Computed:    true,
				ElementType: types.StringType,
				Description: "Store versions installed by this package, by store kind.",
			},
		},
	}
}

func (r *updatePackageResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan updatePackageResourceModel

	diags := req.Plan.Get(ctx, &plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	out, err := runQuorum(ctx, r.data.Binary, plan.AppliancePath.ValueString(),
		"update", "submit", plan.PackagePath.ValueString(), "--actor", r.data.Actor)

	var result struct {
		AttemptID      string            `json:"attempt_id"`
		PackageVersion string            `json:"package_version"`
		State          string            `json:"state"`
		Committed      map[string]string `json:"committed"`
		FailureClass   string            `json:"failure_class"`
		Reason         string            `json:"reason"`
	}
	if len(out) > 0 {
		// A rejected package still prints the attempt record
		if jsonErr := json.Unmarshal(out, &result); jsonErr != nil && err == nil {
			err = jsonErr
		}
	}
	if err != nil && result.AttemptID == "" {
		resp.Diagnostics.AddError(
			"Failed to submit package",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}
	if result.State != "COMMITTED" {
		resp.Diagnostics.AddError(
			"Package rejected",
			fmt.Sprintf("Attempt %s failed [%s]: %s", result.AttemptID, result.FailureClass, result.Reason),
		)
		return
	}

	plan.ID = types.StringValue(result.AttemptID)
	plan.PackageVersion = types.StringValue(result.PackageVersion)
	plan.State = types.StringValue(result.State)

	committed, diags := types.MapValueFrom(ctx, types.StringType, result.Committed)
	resp.Diagnostics.Append(diags...)
	plan.Committed = committed

	diags = resp.State.Set(ctx, plan)
	resp.Diagnostics.Append(diags...)
}

func (r *updatePackageResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state updatePackageResourceModel

	diags := req.State.Get(ctx, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// Committed updates are immutable facts in the appliance audit
	// trail; the resource only tracks that the attempt happened.
	diags = resp.State.Set(ctx, state)
	resp.Diagnostics.Append(diags...)
}

func (r *updatePackageResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	// Changing package_path or appliance_path forces replacement;
	// an applied update has no in-place mutable attributes.
	resp.Diagnostics.AddError(
		"Cannot update submitted package",
		"A committed update is immutable. Submit a new package instead.",
	)
}

func (r *updatePackageResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state updatePackageResourceModel

	diags := req.State.Get(ctx, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// Roll back every store kind the package touched
	out, err := runQuorum(ctx, r.data.Binary, state.AppliancePath.ValueString(),
		"update", "rollback", "--all", "--actor", r.data.Actor)
	if err != nil {
		resp.Diagnostics.AddWarning(
			"Rollback incomplete",
			fmt.Sprintf("Error: %s (output: %s)", err, out),
		)
	}
}

// updatePackageResourceModel models the update package resource data
type updatePackageResourceModel struct {
	AppliancePath  types.String `tfsdk:"appliance_path"`
	PackagePath    types.String `tfsdk:"package_path"`
	ID             types.String `tfsdk:"id"`
	PackageVersion types.String `tfsdk:"package_version"`
	State          types.String `tfsdk:"state"`
	Committed      types.Map    `tfsdk:"committed"`
}
