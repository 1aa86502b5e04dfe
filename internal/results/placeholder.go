package results

import "encoding/json"

type sampleTopic struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
	Summary    string `json:"summary"`
}

type samplePoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Topic string  `json:"topic"`
	Text  string  `json:"text"`
}

var sampleTopics = []sampleTopic{
	{"topic1", "Payment Processing", 2502, "33.5%", "Documents related to how payments are handled."},
	{"topic2", "Account Management", 1438, "19.2%", "Focuses on managing user accounts."},
	{"topic3", "Transaction Services", 1057, "14.1%", "Details about various transaction services offered."},
	{"topic4", "Regulatory Compliance", 1002, "13.4%", "Concerns legal and regulatory adherence."},
	{"topic5", "Fee Structure", 905, "12.1%", "Information about fees and charges."},
	{"topic6", "Credit Services", 442, "5.9%", "Relating to credit applications and management."},
	{"topic7", "New Accounts", 136, "1.8%", "Opening and setting up new accounts."},
}

var samplePoints = []samplePoint{
	{-40, 25, "topic1", "Document about ACH transfer fees..."},
	{-35, 30, "topic1", "Details on wire payment limits..."},
	{-30, 20, "topic1", "Credit card processing agreement..."},
	{10, -10, "topic2", "How to reset your account password..."},
	{15, -15, "topic2", "Updating your contact information..."},
	{5, -5, "topic2", "Closing an existing account procedure..."},
	{20, 40, "topic3", "Overview of international money transfers..."},
	{25, 35, "topic3", "Real-time payment network details..."},
	{-25, -25, "topic4", "GDPR compliance statement..."},
	{0, 0, "topic4", "AML policy update..."},
	{30, 10, "topic5", "Schedule of service fees..."},
	{-10, 45, "topic5", "Fee dispute resolution..."},
	{40, -30, "topic6", "Credit scoring model explained..."},
	{5, 30, "topic6", "Applying for a business loan..."},
	{-45, 0, "topic7", "Documents required for new account..."},
	{25, -40, "topic7", "Welcome kit for new customers..."},
}

// SampleRaw is a fixed response in the analysis-service wire shape, used when
// no service is configured and in demos.
func SampleRaw(message string) Raw {
	if message == "" {
		message = "Sample clustering results loaded."
	}
	raw := Raw{}
	raw["message"], _ = json.Marshal(message)
	raw["topics"], _ = json.Marshal(sampleTopics)
	raw["clusterPoints"], _ = json.Marshal(samplePoints)
	return raw
}
