package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

// azureCredentialProvider requests PostgreSQL tokens from any Azure credential.
type azureCredentialProvider struct {
	credential azcore.TokenCredential
	name       string
}

func (p *azureCredentialProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	token, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{AzurePostgreSQLScope},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("azure token acquisition failed: %w", err)
	}
	return token.Token, token.ExpiresOn, nil
}

func (p *azureCredentialProvider) String() string {
	return p.name
}

// NewAzureServicePrincipalProvider authenticates with a client secret, the
// usual setup for scheduled import jobs.
func NewAzureServicePrincipalProvider(tenantID, clientID, clientSecret string) (TokenProvider, error) {
	if tenantID == "" || clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("azure service principal requires tenantID, clientID, and clientSecret: %w", stockimport.ErrInvalidConfig)
	}

	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	return &azureCredentialProvider{
		credential: cred,
		name:       fmt.Sprintf("AzureServicePrincipal(tenant=%s, client=%s)", tenantID, clientID),
	}, nil
}

// NewAzureDefaultCredentialProvider uses DefaultAzureCredential: environment,
// workload identity, managed identity, then developer CLIs.
func NewAzureDefaultCredentialProvider() (TokenProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure default credential: %w", err)
	}

	return &azureCredentialProvider{credential: cred, name: "AzureDefaultCredential"}, nil
}
