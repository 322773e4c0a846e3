// Package mediaservices talks to an Azure Media Services account through
// the Azure Resource Manager SDK.
package mediaservices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/mediaservices/armmediaservices/v3"

	"overlayvideos/internal/config"
	"overlayvideos/internal/jobs"
)

// Permission scopes a container signed URL.
type Permission string

const (
	PermissionRead      Permission = "Read"
	PermissionReadWrite Permission = "ReadWrite"
)

// Client is bound to one subscription, resource group and account.
type Client struct {
	resourceGroup string
	account       string
	transforms    *armmediaservices.TransformsClient
	assets        *armmediaservices.AssetsClient
	jobs          *armmediaservices.JobsClient
}

// NewCredential exchanges the configured application id and secret for
// tokens issued by the configured directory.
func NewCredential(cfg config.Config) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.AadTenantID, cfg.AadClientID, cfg.AadSecret,
		&azidentity.ClientSecretCredentialOptions{
			ClientOptions: azcore.ClientOptions{Cloud: cloudConfig(cfg)},
		})
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	return cred, nil
}

// New builds a client for the account named in cfg.
func New(cfg config.Config, cred azcore.TokenCredential) (*Client, error) {
	if err := cfg.ValidateAzure(); err != nil {
		return nil, err
	}
	opts := &arm.ClientOptions{ClientOptions: azcore.ClientOptions{Cloud: cloudConfig(cfg)}}

	transforms, err := armmediaservices.NewTransformsClient(cfg.SubscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("transforms client: %w", err)
	}
	assets, err := armmediaservices.NewAssetsClient(cfg.SubscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("assets client: %w", err)
	}
	jobsClient, err := armmediaservices.NewJobsClient(cfg.SubscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("jobs client: %w", err)
	}
	return &Client{
		resourceGroup: cfg.ResourceGroup,
		account:       cfg.AccountName,
		transforms:    transforms,
		assets:        assets,
		jobs:          jobsClient,
	}, nil
}

func cloudConfig(cfg config.Config) cloud.Configuration {
	return cloud.Configuration{
		ActiveDirectoryAuthorityHost: cfg.AadEndpoint,
		Services: map[cloud.ServiceName]cloud.ServiceConfiguration{
			cloud.ResourceManager: {
				Audience: cfg.ArmAadAudience,
				Endpoint: cfg.ArmEndpoint,
			},
		},
	}
}

// GetTransform returns ErrNotFound when no transform has that name.
func (c *Client) GetTransform(ctx context.Context, name string) (jobs.Transform, error) {
	resp, err := c.transforms.Get(ctx, c.resourceGroup, c.account, name, nil)
	if err != nil {
		return jobs.Transform{}, classify(err)
	}
	return toTransform(resp.Transform), nil
}

// CreateTransform creates or replaces the overlay transform.
func (c *Client) CreateTransform(ctx context.Context, name, overlayLabel string) (jobs.Transform, error) {
	resp, err := c.transforms.CreateOrUpdate(ctx, c.resourceGroup, c.account, name, armmediaservices.Transform{
		Properties: &armmediaservices.TransformProperties{
			Description: to.Ptr(TransformDescription),
			Outputs:     overlayTransformOutputs(overlayLabel),
		},
	}, nil)
	if err != nil {
		return jobs.Transform{}, classify(err)
	}
	return toTransform(resp.Transform), nil
}

// CreateAsset creates the asset or overwrites an existing one of that name.
func (c *Client) CreateAsset(ctx context.Context, name string) error {
	_, err := c.assets.CreateOrUpdate(ctx, c.resourceGroup, c.account, name, armmediaservices.Asset{}, nil)
	return classify(err)
}

// ContainerURL returns a signed URL for the asset's storage container.
func (c *Client) ContainerURL(ctx context.Context, asset string, perm Permission, expiry time.Time) (string, error) {
	resp, err := c.assets.ListContainerSas(ctx, c.resourceGroup, c.account, asset, armmediaservices.ListContainerSasInput{
		Permissions: to.Ptr(armmediaservices.AssetContainerPermission(perm)),
		ExpiryTime:  to.Ptr(expiry.UTC()),
	}, nil)
	if err != nil {
		return "", classify(err)
	}
	for _, u := range resp.AssetContainerSasUrls {
		if u != nil && strings.TrimSpace(*u) != "" {
			return *u, nil
		}
	}
	return "", errors.New("service returned no container sas url for asset " + asset)
}

// CreateJob submits a job against transform.
func (c *Client) CreateJob(ctx context.Context, transform, name string, inputs []jobs.Input, outputAsset string, correlation map[string]string) (jobs.Job, error) {
	resp, err := c.jobs.Create(ctx, c.resourceGroup, c.account, transform, name, newJob(inputs, outputAsset, correlation), nil)
	if err != nil {
		return jobs.Job{}, classify(err)
	}
	return toJob(resp.Job), nil
}

func (c *Client) GetJob(ctx context.Context, transform, name string) (jobs.Job, error) {
	resp, err := c.jobs.Get(ctx, c.resourceGroup, c.account, transform, name, nil)
	if err != nil {
		return jobs.Job{}, classify(err)
	}
	return toJob(resp.Job), nil
}
