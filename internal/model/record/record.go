package record

import "strings"

// Record is the subset of a stored medical record the conversation needs.
type Record struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	FilePath   string `json:"filePath"`
	FileType   string `json:"fileType"`
	RecordType string `json:"recordType,omitempty"`
	RecordDate string `json:"recordDate,omitempty"`
}

// HasImage reports whether the record carries a file the agent can analyze.
func (r Record) HasImage() bool {
	if strings.TrimSpace(r.FilePath) == "" {
		return false
	}
	return strings.Contains(strings.ToLower(r.FileType), "image")
}

// Attachable keeps only records with an analyzable image, preserving order.
func Attachable(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.HasImage() {
			out = append(out, r)
		}
	}
	return out
}

// Seed provides sample records for the development backend.
func Seed() []Record {
	return []Record{
		{
			ID:         "5",
			Title:      "CT报告",
			FilePath:   "https://files.example.com/records/5/ct.png",
			FileType:   "image/png",
			RecordType: "检查报告",
			RecordDate: "2024-03-12",
		},
		{
			ID:         "6",
			Title:      "血常规化验单",
			FilePath:   "https://files.example.com/records/6/blood.jpg",
			FileType:   "image/jpeg",
			RecordType: "化验单",
			RecordDate: "2024-04-02",
		},
		{
			ID:         "7",
			Title:      "门诊病历",
			FilePath:   "https://files.example.com/records/7/visit.pdf",
			FileType:   "application/pdf",
			RecordType: "病历",
			RecordDate: "2024-05-20",
		},
		{
			ID:         "8",
			Title:      "处方",
			RecordType: "处方",
			RecordDate: "2024-05-20",
		},
	}
}
