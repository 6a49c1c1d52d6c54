// internal/pricing/ids.go
package pricing

import "github.com/gagliardetto/solana-go"

// IDMap maps token mints to price-source identifiers. Built once at
// startup and never mutated; tests substitute their own fixture maps.
type IDMap map[solana.PublicKey]string

// Lookup resolves a mint to its price-source id.
func (m IDMap) Lookup(mint solana.PublicKey) (string, bool) {
	id, ok := m[mint]
	return id, ok
}

// knownPriceIDs covers the mints that dominate Whirlpool volume.
var knownPriceIDs = map[string]string{
	"So11111111111111111111111111111111111111112":  "solana",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "usd-coin",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "tether",
	"orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE":  "orca",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "bonk",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "msol",
	"7dHbWXmci3dT8UFYWYZweBLXgycu7Y3iL6trKn1Y7ARj": "lido-staked-sol",
	"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn": "jito-staked-sol",
	"3NZ9JMVBmGAqocybic2c7LQCJScmgsAZ6vQqTDzcqmJh": "wrapped-bitcoin",
	"7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs": "ethereum",
	"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R": "raydium",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "jupiter-exchange-solana",
	"HZ1JovNiVvGrGNiiYvEozEVgZ58xaU3RKwX8eACQBCt3": "pyth-network",
	"EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm": "dogwifcoin",
	"7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU": "samoyedcoin",
}

// DefaultIDMap builds the startup snapshot from the known-token table
// plus per-run overrides (mint address -> price-source id).
func DefaultIDMap(overrides map[string]string) IDMap {
	m := make(IDMap, len(knownPriceIDs)+len(overrides))
	for mint, id := range knownPriceIDs {
		m[solana.MustPublicKeyFromBase58(mint)] = id
	}
	for mint, id := range overrides {
		key, err := solana.PublicKeyFromBase58(mint)
		if err != nil {
			continue
		}
		m[key] = id
	}
	return m
}
