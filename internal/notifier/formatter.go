package notifier

import (
	"fmt"
	"strings"
	"time"

	"DynamicVault/internal/model"
)

// FormatVaultStatus renders the vault record for display.
func FormatVaultStatus(v *model.Vault, now int64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Vault status</b> | %s\n\n", time.Unix(now, 0).UTC().Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Admin: <code>%s</code>\n", v.Admin))
	b.WriteString(fmt.Sprintf("Active bins: [%d, %d]\n", v.CurrentBins.Lower(), v.CurrentBins.Upper()))
	if v.HasCandidate() {
		b.WriteString(fmt.Sprintf("Pending bins: [%d, %d]\n", v.PendingRebalanceBins.Lower(), v.PendingRebalanceBins.Upper()))
	} else {
		b.WriteString("Pending bins: none\n")
	}
	b.WriteString(fmt.Sprintf("Last price: %.4f (%ds ago)\n", v.LastPrice, v.PriceAge(now)))
	b.WriteString(fmt.Sprintf("Threshold: %d%% | Min delay: %ds\n", v.RebalanceThreshold, v.MinRebalanceDelay))
	b.WriteString(fmt.Sprintf("Fees: %d / %d\n", v.TotalFeesEarned, v.MaxFeeAmount))
	if v.LastRebalanceTime > 0 {
		b.WriteString(fmt.Sprintf("Last rebalance: %s\n", time.Unix(v.LastRebalanceTime, 0).UTC().Format("2006-01-02 15:04")))
	}
	if v.LastFeeHarvestTime > 0 {
		b.WriteString(fmt.Sprintf("Last harvest: %s\n", time.Unix(v.LastFeeHarvestTime, 0).UTC().Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatCandidate reports a newly staged rebalance candidate.
func FormatCandidate(price, driftPct float64, candidate model.Bins) string {
	return fmt.Sprintf("🎯 <b>Rebalance candidate</b>\n\nPrice: %.4f (drift %.2f%%)\nNew bins: [%d, %d]",
		price, driftPct, candidate.Lower(), candidate.Upper())
}

// FormatRebalance reports a committed range move.
func FormatRebalance(from, to model.Bins, tokenAmount uint64) string {
	return fmt.Sprintf("🔁 <b>Rebalanced</b>\n\n[%d, %d] → [%d, %d]\nDeposited: %d",
		from.Lower(), from.Upper(), to.Lower(), to.Upper(), tokenAmount)
}

// FormatHarvest reports a committed fee harvest.
func FormatHarvest(claimed, total, limit uint64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💰 <b>Fees harvested</b>\n\nClaimed: %d\nTotal: %d / %d\n", claimed, total, limit))
	if limit > 0 && total*10 >= limit*9 {
		b.WriteString("\n⚠️ Fee total is within 10% of the cap")
	}
	return b.String()
}

// FormatReseed reports a price bookkeeping restart after a feed gap.
func FormatReseed(price float64, gapSeconds int64) string {
	return fmt.Sprintf("🔄 <b>Price feed reseeded</b>\n\nNo sample for %ds\nNew price: %.4f", gapSeconds, price)
}

// FormatRejection reports a guarded operation the keeper could not apply.
func FormatRejection(op, kind string, err error) string {
	return fmt.Sprintf("❌ <b>%s rejected</b> (%s)\n\n%v", op, kind, err)
}
