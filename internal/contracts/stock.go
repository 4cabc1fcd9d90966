package contracts

// Market identifies which KRX board a Stock is listed on.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
	MarketKONEX  Market = "KONEX"
)

// Stock is the immutable master record for a listed ticker.
// Created once at universe discovery, updated only by a weekly refresh.
type Stock struct {
	Ticker       string // 6-digit zero-padded, e.g. "005930"
	NameKR       string
	NameEN       string
	Market       Market
	Sector       string
	Industry     string
	ListedShares int64
	Active       bool
}
