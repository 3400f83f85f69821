package indicators

import "forex-signal-engine/internal/market"

// Default periods
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	StochK          = 14
	StochD          = 3
	MomentumPeriod  = 10
	ATRPeriod       = 14
	BollingerPeriod = 20
	BollingerStdDev = 2.0
	ADXPeriod       = 14
	IchimokuTenkan  = 9
	IchimokuKijun   = 26
	IchimokuSenkouB = 52
	MFIPeriod       = 14
	CMFPeriod       = 20
)

// Snapshot is the full indicator set for one series
type Snapshot struct {
	Price      float64          `json:"price"`
	EMA9       float64          `json:"ema9"`
	EMA21      float64          `json:"ema21"`
	EMA50      float64          `json:"ema50"`
	EMA200     float64          `json:"ema200"`
	SMA20      float64          `json:"sma20"`
	RSI        RSIResult        `json:"rsi"`
	MACD       MACDResult       `json:"macd"`
	Stochastic StochasticResult `json:"stochastic"`
	Momentum   float64          `json:"momentum"`
	ROC        float64          `json:"roc"`
	ATR        float64          `json:"atr"`
	Bollinger  BollingerResult  `json:"bollinger"`
	ADX        ADXResult        `json:"adx"`
	Ichimoku   IchimokuResult   `json:"ichimoku"`
	OBV        float64          `json:"obv"`
	MFI        MFIResult        `json:"mfi"`
	CMF        float64          `json:"cmf"`
}

// Calculate runs every indicator with its default period
func Calculate(candles market.Series) Snapshot {
	closes := candles.Closes()
	return Snapshot{
		Price:      round(candles.Last().Close),
		EMA9:       CalculateEMA(closes, 9),
		EMA21:      CalculateEMA(closes, 21),
		EMA50:      CalculateEMA(closes, 50),
		EMA200:     CalculateEMA(closes, 200),
		SMA20:      CalculateSMA(closes, 20),
		RSI:        CalculateRSI(closes, RSIPeriod),
		MACD:       CalculateMACD(closes, MACDFast, MACDSlow, MACDSignal),
		Stochastic: CalculateStochastic(candles, StochK, StochD),
		Momentum:   CalculateMomentum(closes, MomentumPeriod),
		ROC:        CalculateROC(closes, MomentumPeriod),
		ATR:        CalculateATR(candles, ATRPeriod),
		Bollinger:  CalculateBollingerBands(closes, BollingerPeriod, BollingerStdDev),
		ADX:        CalculateADX(candles, ADXPeriod),
		Ichimoku:   CalculateIchimoku(candles, IchimokuTenkan, IchimokuKijun, IchimokuSenkouB),
		OBV:        CalculateOBV(candles),
		MFI:        CalculateMFI(candles, MFIPeriod),
		CMF:        CalculateCMF(candles, CMFPeriod),
	}
}
