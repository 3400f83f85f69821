package analysis

// Technical analysis
const (
	TechnicalMinBars     = 50
	StrongTrendVotePct   = 70.0
	TrendVotePct         = 55.0
	AgreementBonusFactor = 0.6
	ConfirmationBonus    = 5.0
	ADXTrendingLevel     = 25.0
	ADXStrongLevel       = 40.0
)

// Smart money analysis
const (
	SmartMoneyMinBars       = 100
	SwingLookback           = 3
	AverageRangePeriod      = 14
	OrderBlockMoveBars      = 3
	OrderBlockMoveMultiple  = 2.0
	FVGMinGapMultiple       = 0.3
	EqualLevelTolerance     = 0.001
	EqualLevelMinTouches    = 2
	PremiumDiscountLookback = 50
	PremiumThreshold        = 0.75
	DiscountThreshold       = 0.25
	StructureVote           = 2
	PremiumDiscountVote     = 1
	CHoCHVote               = 3
	OrderBlockVote          = 1
	HighConfidenceVotes     = 5
	MediumConfidenceVotes   = 3
	SmartMoneyVoteScore     = 6.0
	SmartMoneyConfirmBonus  = 5.0
	MaxReportedZones        = 10
)

// Multi-timeframe analysis
const (
	TimeframeMinBars       = 50
	AlignmentMinTimeframes = 4
	StrongBiasMargin       = 0.2
	BiasMargin             = 0.1
	MTFRecommendMinScore   = 60.0
	StrongTrendBonus       = 10.0
	HighConfidenceBonus    = 10.0
)

// Volume analysis
const (
	VolumeMinBars           = 20
	VolumeProfileBins       = 24
	ValueAreaPercent        = 0.70
	OBVDivergenceLookback   = 20
	PriceDirectionLookback  = 10
	VolumeConfirmationRatio = 0.6
	VolumeVoteScore         = 8.0
	VolumeConfirmedBonus    = 10.0
)
