package auth

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// GraphScope is the application scope of Microsoft Graph
const GraphScope = "https://graph.microsoft.com/.default"

// ClientCredentials returns a token source for an Entra ID application
// using the client credentials grant
func ClientCredentials(ctx context.Context, tenantID, clientID, clientSecret string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		Scopes:       []string{GraphScope},
	}
	return cfg.TokenSource(ctx)
}

// TokenCredential adapts an oauth2.TokenSource to azcore.TokenCredential,
// as required by the Graph SDK
type TokenCredential struct {
	Source oauth2.TokenSource
}

func (c *TokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok, err := c.Source.Token()
	if err != nil {
		return azcore.AccessToken{}, fmt.Errorf("acquire token: %w", err)
	}
	return azcore.AccessToken{
		Token:     tok.AccessToken,
		ExpiresOn: tok.Expiry,
	}, nil
}
