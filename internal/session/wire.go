package session

import (
	"fmt"
	"net/http"

	"crm-dashboard/internal/apiclient"
	"crm-dashboard/internal/tokenstore"
)

// Wire builds an API client over store and a coordinator that recovers its 401s.
// base is the wire transport; nil selects http.DefaultTransport.
func Wire(cfg apiclient.Config, store tokenstore.Store, nav Navigator, base http.RoundTripper) (*Coordinator, *apiclient.Client, error) {
	client, err := apiclient.New(cfg, store, base)
	if err != nil {
		return nil, nil, fmt.Errorf("api client: %w", err)
	}

	coord := New(client.Auth, store, nav)
	client.SetRecovery(coord)
	return coord, client, nil
}
