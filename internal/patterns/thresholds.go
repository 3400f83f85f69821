package patterns

// Candlestick geometry
const (
	AverageBodyPeriod = 10
	DojiBodyRatio     = 0.10 // body / range
	LongWickMultiple  = 2.0  // wick vs body for hammer-type candles
	ShortWickRatio    = 0.3  // opposite wick vs body
	LongBodyRatio     = 0.6  // body / range for a decisive candle
	StarBodyRatio     = 0.4  // middle star body vs first body
	HaramiBodyRatio   = 0.5
	MarubozuBodyRatio = 0.95
	MarubozuAvgBody   = 1.5 // body vs average body
	SoldierMinAvgBody = 0.5
)

// Chart geometry
const (
	ChartSwingLookback    = 5
	DoubleLevelTolerance  = 0.02
	DoubleMinSeparation   = 5
	ShoulderTolerance     = 0.03
	TriangleFlatTolerance = 0.02
	TriangleSlopeRatio    = 2.0
	TriangleMaxAge        = 40
)

// Harmonic geometry
const (
	HarmonicSwingLookback = 3
	HarmonicTolerance     = 0.05 // absolute tolerance on each Fibonacci ratio
	HarmonicMaxAge        = 30   // bars since point D
)

// Reliability per pattern
var reliability = map[PatternType]int{
	Doji:                 1,
	Hammer:               2,
	InvertedHammer:       2,
	ShootingStar:         2,
	HangingMan:           2,
	BullishMarubozu:      2,
	BearishMarubozu:      2,
	BullishHarami:        2,
	BearishHarami:        2,
	PiercingLine:         3,
	DarkCloudCover:       3,
	BullishEngulfing:     3,
	BearishEngulfing:     3,
	MorningStar:          4,
	EveningStar:          4,
	ThreeWhiteSoldiers:   4,
	ThreeBlackCrows:      4,
	DoubleTop:            4,
	DoubleBottom:         4,
	HeadAndShoulders:     4,
	InverseHeadShoulders: 4,
	AscendingTriangle:    3,
	DescendingTriangle:   3,
	SymmetricalTriangle:  2,
	Gartley:              4,
	Bat:                  4,
	Butterfly:            3,
}

// Score weight per category, multiplied by reliability
var categoryWeight = map[Category]float64{
	CategoryCandlestick: 3,
	CategoryChart:       5,
	CategoryHarmonic:    6,
}

// BiasDominance is how much one side's reliability sum must exceed the other's
const BiasDominance = 1.5
