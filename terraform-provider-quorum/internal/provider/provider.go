package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// New creates a new Quorum provider
func New() provider.Provider {
	return &quorumProvider{}
}

type quorumProvider struct{}

func (p *quorumProvider) Metadata(_ context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "quorum"
	resp.Version = "1.0.0"
}

func (p *quorumProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		Attributes: map[string]schema.Attribute{
			"binary": schema.StringAttribute{
				Description: "Path to the quorum CLI binary. Defaults to \"quorum\" on PATH.",
				Optional:    true,
			},
			"actor": schema.StringAttribute{
				Description: "Default audit actor recorded for provider-driven operations.",
				Optional:    true,
			},
		},
	}
}

func (p *quorumProvider) Configure(_ context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	// Get provider configuration
	var config providerConfig

	diags := req.Config.Get(context.Background(), &config)
	resp.Diagnostics.Append(diags...)

	if resp.Diagnostics.HasError() {
		return
	}

	// Store configured values in provider data
	providerData := &providerData{
		Binary: config.Binary.ValueString(),
		Actor:  config.Actor.ValueString(),
	}

	if providerData.Binary == "" {
		providerData.Binary = "quorum"
	}
	if providerData.Actor == "" {
		providerData.Actor = "terraform"
	}

	resp.DataSourceData = providerData
	resp.ResourceData = providerData
}

func (p *quorumProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewApplianceResource,
		NewUpdatePackageResource,
	}
}

func (p *quorumProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewStoreStatusDataSource,
		NewAuditDataSource,
	}
}

// providerConfig holds the provider configuration
type providerConfig struct {
	Binary types.String `tfsdk:"binary"`
	Actor  types.String `tfsdk:"actor"`
}

// providerData holds data shared between resources and data sources
type providerData struct {
	Binary string
	Actor  string
}
