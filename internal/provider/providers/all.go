// Package providers links every DNS backend into the binary so that
// provider.New can find them by name.
package providers

import (
	_ "github.com/evanofslack/dns-ip-sync/internal/provider/clouddns"
	_ "github.com/evanofslack/dns-ip-sync/internal/provider/cloudflare"
	_ "github.com/evanofslack/dns-ip-sync/internal/provider/digitalocean"
)
