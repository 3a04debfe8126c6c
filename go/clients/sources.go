package clients

// Cluster represents a Solana-compatible network the client can talk to
type Cluster string

const (
	// ClusterDevnet is the public development cluster
	ClusterDevnet Cluster = "devnet"

	// ClusterTestnet is the public test cluster
	ClusterTestnet Cluster = "testnet"

	// ClusterMainnet is the production cluster
	ClusterMainnet Cluster = "mainnet-beta"

	// ClusterLocalnet is a validator running on this machine
	ClusterLocalnet Cluster = "localnet"
)

// ClusterConfig holds the endpoints for a cluster
type ClusterConfig struct {
	Cluster     Cluster `json:"cluster" yaml:"cluster"`
	Name        string  `json:"name" yaml:"name"`
	RPCURL      string  `json:"rpc_url" yaml:"rpc_url"`
	WSURL       string  `json:"ws_url" yaml:"ws_url"`
	Priority    int     `json:"priority" yaml:"priority"` // Higher priority clusters are preferred as default
	Active      bool    `json:"active" yaml:"active"`
	Description string  `json:"description" yaml:"description"`
}

// GetClusters returns all known clusters
func GetClusters() map[Cluster]ClusterConfig {
	return map[Cluster]ClusterConfig{
		ClusterDevnet: {
			Cluster:     ClusterDevnet,
			Name:        "Devnet",
			RPCURL:      "https://api.devnet.solana.com",
			WSURL:       "wss://api.devnet.solana.com",
			Priority:    100,
			Active:      true,
			Description: "Public development cluster, the program's home deployment",
		},
		ClusterTestnet: {
			Cluster:     ClusterTestnet,
			Name:        "Testnet",
			RPCURL:      "https://api.testnet.solana.com",
			WSURL:       "wss://api.testnet.solana.com",
			Priority:    50,
			Active:      false,
			Description: "Public test cluster",
		},
		ClusterMainnet: {
			Cluster:     ClusterMainnet,
			Name:        "Mainnet Beta",
			RPCURL:      "https://api.mainnet-beta.solana.com",
			WSURL:       "wss://api.mainnet-beta.solana.com",
			Priority:    10,
			Active:      false,
			Description: "Production cluster",
		},
		ClusterLocalnet: {
			Cluster:     ClusterLocalnet,
			Name:        "Localnet",
			RPCURL:      "http://127.0.0.1:8899",
			WSURL:       "ws://127.0.0.1:8900",
			Priority:    90,
			Active:      true,
			Description: "solana-test-validator on this machine",
		},
	}
}

// ValidateCluster checks if the cluster is known
func ValidateCluster(cluster Cluster) bool {
	_, exists := GetClusters()[cluster]
	return exists
}

// GetActiveClusters returns only active clusters
func GetActiveClusters() map[Cluster]ClusterConfig {
	all := GetClusters()
	active := make(map[Cluster]ClusterConfig)

	for cluster, config := range all {
		if config.Active {
			active[cluster] = config
		}
	}

	return active
}

// GetHighestPriorityCluster returns the active cluster with highest priority
func GetHighestPriorityCluster() Cluster {
	var highest Cluster
	var highestPriority int

	for cluster, config := range GetActiveClusters() {
		if config.Priority > highestPriority {
			highest = cluster
			highestPriority = config.Priority
		}
	}

	return highest
}
