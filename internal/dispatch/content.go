package dispatch

import "winova/internal/schedule"

type contentBuilder func(uploads []Upload) map[string]any

var builders = map[schedule.ReportKind]contentBuilder{
	schedule.ReportCompliance:        complianceContent,
	schedule.ReportCarbonAnalysis:    carbonContent,
	schedule.ReportRegulatorySummary: regulatoryContent,
}

// buildContent returns empty content for kinds without a builder.
func buildContent(kind schedule.ReportKind, uploads []Upload) map[string]any {
	b, ok := builders[kind]
	if !ok {
		return map[string]any{}
	}
	return b(uploads)
}

func complianceContent(uploads []Upload) map[string]any {
	total := 0
	for _, u := range uploads {
		total += u.RecordCount
	}
	return map[string]any{
		"total_records":     total,
		"uploads":           len(uploads),
		"compliance_status": "Under Review",
		"recommendations": []string{
			"Review emission thresholds against current regulations",
			"Verify data completeness for all reporting periods",
			"Schedule the next internal compliance audit",
		},
	}
}

// carbonContent is a placeholder footprint until real analysis is wired in.
func carbonContent([]Upload) map[string]any {
	return map[string]any{
		"total_emissions": 12345,
		"trend":           "decreasing",
		"recommendation":  "Continue current strategy",
		"monthly_data": []map[string]any{
			{"month": "Jan", "emissions": 12000},
			{"month": "Feb", "emissions": 11800},
			{"month": "Mar", "emissions": 11500},
		},
	}
}

func regulatoryContent([]Upload) map[string]any {
	return map[string]any{
		"regulations": []map[string]any{
			{"name": "EU ETS", "status": "Compliant", "next_review": "2024-06-15"},
			{"name": "US EPA", "status": "Pending", "next_review": "2024-04-20"},
			{"name": "UK Carbon Tax", "status": "Compliant", "next_review": "2024-08-10"},
		},
	}
}
