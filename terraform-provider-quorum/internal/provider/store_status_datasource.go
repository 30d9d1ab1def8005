package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// NewStoreStatusDataSource creates a new store status data source
func NewStoreStatusDataSource() datasource.DataSource {
	return &storeStatusDataSource{}
}

type storeStatusDataSource struct {
	data *providerData
}

func (d *storeStatusDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = "quorum_store_status"
}

func (d *storeStatusDataSource) Configure(_ context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}
	d.data = req.ProviderData.(*providerData)
}

func (d *storeStatusDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Reads the active knowledge store versions of a Quorum appliance.",

		Attributes: map[string]schema.Attribute{
			"appliance_path": schema.StringAttribute{
				Required:    true,
				Description: "Directory containing the appliance .quorum state directory.",
			},
			"active_versions": schema.MapAttribute{
				Computed:    true,
				ElementType: types.StringType,
				Description: "Active version per store kind. Unprovisioned kinds are absent.",
			},
			"rollback_targets": schema.MapAttribute{
				Computed:    true,
				ElementType: types.StringType,
				Description: "Version a rollback would restore, per store kind.",
			},
		},
	}
}

func (d *storeStatusDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var config storeStatusDataSourceModel

	diags := req.Config.Get(ctx, &config)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	out, err := runQuorum(ctx, d.data.Binary, config.AppliancePath.ValueString(), "stores", "status")
	if err != nil {
		resp.Diagnostics.AddError(
			"Failed to read store status",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	var stores []struct {
		Kind   string `json:"kind"`
		Active *struct {
			Version string `json:"version"`
		} `json:"active"`
		RollbackTarget string `json:"rollback_target"`
	}
	if err := json.Unmarshal(out, &stores); err != nil {
		resp.Diagnostics.AddError(
			"Failed to parse store status",
			fmt.Sprintf("Error: %s", err),
		)
		return
	}

	active := make(map[string]string)
	targets := make(map[string]string)
	for _, s := range stores {
		if s.Active != nil {
			active[s.Kind] = s.Active.Version
		}
		if s.RollbackTarget != "" {
			targets[s.Kind] = s.RollbackTarget
		}
	}

	activeMap, diags := types.MapValueFrom(ctx, types.StringType, active)
	resp.Diagnostics.Append(diags...)
	config.ActiveVersions = activeMap

	targetMap, diags := types.MapValueFrom(ctx, types.StringType, targets)
	resp.Diagnostics.Append(diags...)
	config.RollbackTargets = targetMap

	diags = resp.State.Set(ctx, config)
	resp.Diagnostics.Append(diags...)
}

// storeStatusDataSourceModel models the store status data source
type storeStatusDataSourceModel struct {
	AppliancePath   types.String `tfsdk:"appliance_path"`
	ActiveVersions  types.Map    `tfsdk:"active_versions"`
	RollbackTargets types.Map    `tfsdk:"rollback_targets"`
}
