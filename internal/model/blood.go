package model

// BloodType is one of the eight ABO/Rh combinations.
type BloodType string

const (
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
)

// BloodTypes lists every valid type in a stable order.
var BloodTypes = []BloodType{
	BloodTypeAPos, BloodTypeANeg,
	BloodTypeBPos, BloodTypeBNeg,
	BloodTypeABPos, BloodTypeABNeg,
	BloodTypeOPos, BloodTypeONeg,
}

// donorTo maps a donor type to the recipient types it can give to.
var donorTo = map[BloodType][]BloodType{
	BloodTypeONeg:  BloodTypes,
	BloodTypeOPos:  {BloodTypeOPos, BloodTypeAPos, BloodTypeBPos, BloodTypeABPos},
	BloodTypeANeg:  {BloodTypeANeg, BloodTypeAPos, BloodTypeABNeg, BloodTypeABPos},
	BloodTypeAPos:  {BloodTypeAPos, BloodTypeABPos},
	BloodTypeBNeg:  {BloodTypeBNeg, BloodTypeBPos, BloodTypeABNeg, BloodTypeABPos},
	BloodTypeBPos:  {BloodTypeBPos, BloodTypeABPos},
	BloodTypeABNeg: {BloodTypeABNeg, BloodTypeABPos},
	BloodTypeABPos: {BloodTypeABPos},
}

func (b BloodType) Valid() bool {
	_, ok := donorTo[b]
	return ok
}

func (b BloodType) String() string { return string(b) }

// CanDonateTo reports whether a donor of type b can give to recipient.
func (b BloodType) CanDonateTo(recipient BloodType) bool {
	for _, r := range donorTo[b] {
		if r == recipient {
			return true
		}
	}
	return false
}

// CompatibleDonors lists the donor types that can give to recipient.
func CompatibleDonors(recipient BloodType) []BloodType {
	var out []BloodType
	for _, donor := range BloodTypes {
		if donor.CanDonateTo(recipient) {
			out = append(out, donor)
		}
	}
	return out
}

func BloodTypeStrings() []string {
	out := make([]string, len(BloodTypes))
	for i, b := range BloodTypes {
		out[i] = string(b)
	}
	return out
}

// Urgency of a blood request. It drives expiry and ordering.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Hours is how long a request of this urgency stays open.
func (u Urgency) Hours() int {
	switch u {
	case UrgencyCritical:
		return 6
	case UrgencyHigh:
		return 24
	case UrgencyMedium:
		return 72
	default:
		return 168
	}
}

// Rank orders urgencies most urgent first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	default:
		return 3
	}
}

func UrgencyStrings() []string {
	out := make([]string, len(Urgencies))
	for i, u := range Urgencies {
		out[i] = string(u)
	}
	return out
}
