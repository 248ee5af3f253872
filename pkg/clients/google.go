package clients

import (
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// GoogleOptions selects the credentials and endpoint of a Google Cloud client.
type GoogleOptions struct {
	// CredentialsFile is a service account or authorized user JSON file
	CredentialsFile string
	// Token is a pre-issued OAuth2 access token
	Token string
	// Endpoint overrides the API endpoint (emulators)
	Endpoint string
}

// ClientOptions converts o into client options. With neither a credentials
// file nor a token, Application Default Credentials are used. An endpoint
// without credentials is assumed to be an emulator and disables auth.
func (o GoogleOptions) ClientOptions() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case o.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	case o.Token != "":
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: o.Token,
			TokenType:   "Bearer",
		})))
	case o.Endpoint != "":
		opts = append(opts, option.WithoutAuthentication())
	}
	if o.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.Endpoint))
	}
	return opts
}
