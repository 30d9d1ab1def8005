package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// NewApplianceResource creates a new appliance resource
func NewApplianceResource() resource.Resource {
	return &applianceResource{}
}

type applianceResource struct {
	data *providerData
}

func (r *applianceResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = "quorum_appliance"
}

func (r *applianceResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}
	r.data = req.ProviderData.(*providerData)
}

func (r *applianceResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "A Quorum appliance state directory holding versioned knowledge stores and the audit trail.",

		Attributes: map[string]schema.Attribute{
			"path": schema.StringAttribute{
				Required:    true,
				Description: "Directory in which the .quorum state directory is initialized.",
			},
			"verify_key_pem": schema.StringAttribute{
				Optional:    true,
				Sensitive:   true,
				Description: "PEM-encoded RSA public key provisioned for update package verification.",
			},
			"id": schema.StringAttribute{
				Computed:    true,
				Description: "Appliance ID assigned at initialization.",
			},
			"format_version": schema.Int64Attribute{
				Computed:    true,
				Description: "State directory format version.",
			},
		},
	}
}

func (r *applianceResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan applianceResourceModel

	diags := req.Plan.Get(ctx, &plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	path := plan.Path.ValueString()
	out, err := runQuorum(ctx, r.data.Binary, ".", "init", path, "--actor", r.data.Actor)
	if err != nil {
		resp.Diagnostics.AddError(
			"Failed to initialize appliance",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	var initOut struct {
		ApplianceID   string `json:"appliance_id"`
		FormatVersion int64  `json:"format_version"`
	}
	if err := json.Unmarshal(out, &initOut); err != nil {
		resp.Diagnostics.AddError(
			"Failed to parse init output",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	if key := plan.VerifyKeyPEM.ValueString(); key != "" {
		keyPath := filepath.Join(path, ".quorum", "keys", "update_verify.pem")
		if err := os.WriteFile(keyPath, []byte(key), 0o644); err != nil {
			resp.Diagnostics.AddError(
				"Failed to provision verify key",
				fmt.Sprintf("Error: %s", err),
			)
			return
		}
	}

	plan.ID = types.StringValue(initOut.ApplianceID)
	plan.FormatVersion = types.Int64Value(initOut.FormatVersion)

	diags = resp.State.Set(ctx, plan)
	resp.Diagnostics.Append(diags...)
}

func (r *applianceResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state applianceResourceModel

	diags := req.State.Get(ctx, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// Verify the state directory still exists
	idFile := filepath.Join(state.Path.ValueString(), ".quorum", "appliance_id")
	if _, err := os.Stat(idFile); os.IsNotExist(err) {
		resp.State.RemoveResource(ctx)
		return
	}

	diags = resp.State.Set(ctx, state)
	resp.Diagnostics.Append(diags...)
}

func (r *applianceResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan applianceResourceModel

	diags := req.Plan.Get(ctx, &plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// Only the verify key can change in place
	if key := plan.VerifyKeyPEM.ValueString(); key != "" {
		keyPath := filepath.Join(plan.Path.ValueString(), ".quorum", "keys", "update_verify.pem")
		if err := os.WriteFile(keyPath, []byte(key), 0o644); err != nil {
			resp.Diagnostics.AddError(
				"Failed to update verify key",
				fmt.Sprintf("Error: %s", err),
			)
			return
		}
	}

	diags = resp.State.Set(ctx, plan)
	resp.Diagnostics.Append(diags...)
}

func (r *applianceResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state applianceResourceModel

	diags := req.State.Get(ctx, &state)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	// Remove only the state directory, never the surrounding path
	quorumDir := filepath.Join(state.Path.ValueString(), ".quorum")
	if err := os.RemoveAll(quorumDir); err != nil && !os.IsNotExist(err) {
		resp.Diagnostics.AddWarning(
			"Failed to remove state directory",
			fmt.Sprintf("Error: %s", err),
		)
	}
}

func (r *applianceResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	// Import from path
	path := req.ID

	idBytes, err := os.ReadFile(filepath.Join(path, ".quorum", "appliance_id"))
	if err != nil {
		resp.Diagnostics.AddError(
			"Failed to read appliance",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	var state applianceResourceModel
	state.Path = types.StringValue(path)
	state.ID = types.StringValue(string(idBytes))
	state.FormatVersion = types.Int64Value(1)

	diags := resp.State.Set(ctx, state)
	resp.Diagnostics.Append(diags...)
}

// applianceResourceModel models the appliance resource data
type applianceResourceModel struct {
	Path          types.String `tfsdk:"path"`
	VerifyKeyPEM  types.String `tfsdk:"verify_key_pem"`
	ID            types.String `tfsdk:"id"`
	FormatVersion types.Int64  `tfsdk:"format_version"`
}
