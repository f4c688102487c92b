package utils

import (
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

// FormatSats formats satoshi amounts in a human-readable way
func FormatSats(amount int64) string {
	if amount >= btcutil.SatoshiPerBitcoin {
		// Show in BTC for amounts >= 1 BTC
		return fmt.Sprintf("%.8f BTC", btcutil.Amount(amount).ToBTC())
	} else if amount >= 1000000 {
		// Show in millions for amounts >= 1M sats
		return fmt.Sprintf("%.2fM sats", float64(amount)/1000000)
	} else if amount >= 1000 {
		// Show in thousands for amounts >= 1K sats
		return fmt.Sprintf("%.1fK sats", float64(amount)/1000)
	}
	return fmt.Sprintf("%d sats", amount)
}

// FormatMsat formats a millisatoshi amount as passed to the invoice route.
// Sub-satoshi remainders are shown in msat, and "any" passes through.
func FormatMsat(msat string) string {
	n, err := strconv.ParseInt(msat, 10, 64)
	if err != nil || n < 0 {
		return msat
	}
	if n%1000 != 0 {
		return fmt.Sprintf("%d msat", n)
	}
	return FormatSats(n / 1000)
}

// ShortHash abbreviates a hex hash for log lines
func ShortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-8:]
}
