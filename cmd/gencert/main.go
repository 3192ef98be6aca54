// Command gencert writes a self-signed TLS certificate/key pair for the
// grpcs:// transport, for local development and testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/openagents/network/internal/tlsutil"
)

func main() {
	certFile := flag.String("cert", "node-cert.pem", "output certificate file")
	keyFile := flag.String("key", "node-key.pem", "output key file")
	host := flag.String("host", "localhost", "certificate subject/SAN host")
	validFor := flag.Duration("valid-for", 365*24*time.Hour, "certificate validity period")
	flag.Parse()

	if err := tlsutil.GenerateSelfSigned(*certFile, *keyFile, *host, *validFor); err != nil {
		fmt.Fprintf(os.Stderr, "gencert: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s and %s for host %q (valid %s)\n", *certFile, *keyFile, *host, *validFor)
}
