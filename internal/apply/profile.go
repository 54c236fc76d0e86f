package apply

// Profile holds the applicant details submitted with every application.
type Profile struct {
	Salutation string // "herr" or "frau"
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Street     string
	Zip        string
	City       string
	HasWBS     bool
}
