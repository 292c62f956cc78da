package draft

// Entry names under which each slice is stored for a session.
const (
	KeyRegistration = "registrationData"
	KeyPersonalInfo = "personalInfoData"
	KeyLocation     = "locationData"
)

// Keys lists every draft entry, in flow order.
var Keys = []string{KeyRegistration, KeyPersonalInfo, KeyLocation}

// Location methods recorded by the address-search step.
const (
	MethodGeolocation = "geolocation"
	MethodManual      = "manual"
	MethodSearch      = "search"
)

// Registration is written right after the account is created.
type Registration struct {
	Email            string `json:"email"`
	UserID           string `json:"userId"`
	RegistrationStep string `json:"registrationStep"`
	Timestamp        string `json:"timestamp"`
}

// PersonalInfo is written by the personal-info step. PhoneNumber already
// carries the country code prefix.
type PersonalInfo struct {
	FullName    string  `json:"fullName"`
	Gender      string  `json:"gender"`
	PhoneNumber string  `json:"phoneNumber"`
	Birthday    *string `json:"birthday"`
	Step        string  `json:"step"`
}

// Location records how the user chose to provide an address.
type Location struct {
	Method    string   `json:"method"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Query     string   `json:"query,omitempty"`
}

// Snapshot is every slice of a session's draft at one point in time. Absent slices are nil.
type Snapshot struct {
	Registration *Registration `json:"registration,omitempty"`
	PersonalInfo *PersonalInfo `json:"personalInfo,omitempty"`
	Location     *Location     `json:"location,omitempty"`
}

// Empty reports whether no slice is present.
func (s Snapshot) Empty() bool {
	return s.Registration == nil && s.PersonalInfo == nil && s.Location == nil
}
