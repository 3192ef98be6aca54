// Package config loads the node's two configuration surfaces: the
// observability environment-variable settings (AppConfig, see
// config.go) and the network topology/mods/groups YAML file
// (NetworkConfig, see network.go) that drives everything else.
//
// # Network config
//
//	cfg, err := config.LoadNetworkConfig("network.yaml")
//
// # Observability config
//
//	appConfig := config.Load()
package config
