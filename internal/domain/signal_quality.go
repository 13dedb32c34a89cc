package domain

// RSSI thresholds in -dBm as reported by the RX64 RSSI byte. Receiver
// sensitivity of 802.15.4 modules sits around -92..-100 dBm.
const (
	RSSIGood = 70
	RSSIFair = 85
)

type SignalQuality int

const (
	SignalUnknown SignalQuality = iota
	SignalBad
	SignalFair
	SignalGood
)

var signalQualityNames = map[SignalQuality]string{
	SignalUnknown: "unknown",
	SignalBad:     "bad",
	SignalFair:    "fair",
	SignalGood:    "good",
}

func (q SignalQuality) String() string {
	if name, ok := signalQualityNames[q]; ok {
		return name
	}
	return signalQualityNames[SignalUnknown]
}

// DetermineSignalQuality grades an RSSI magnitude; smaller is stronger.
func DetermineSignalQuality(rssi int) SignalQuality {
	switch {
	case rssi <= 0:
		return SignalUnknown
	case rssi <= RSSIGood:
		return SignalGood
	case rssi <= RSSIFair:
		return SignalFair
	default:
		return SignalBad
	}
}
