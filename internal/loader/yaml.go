package loader

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

// yamlRecord is one billing record in a YAML batch file. Days accept the
// same list-and-range expressions as the CSV column.
type yamlRecord struct {
	UCI          string `yaml:"uci"`
	LastName     string `yaml:"last_name"`
	FirstName    string `yaml:"first_name"`
	AuthNumber   string `yaml:"auth_number"`
	SvcCode      string `yaml:"svc_code"`
	SvcSubcode   string `yaml:"svc_subcode"`
	SvcMonthYear string `yaml:"svc_month_year"`
	SPNID        string `yaml:"spn_id"`
	Days         string `yaml:"days"`
}

// LoadYAML reads billing records from a YAML batch file. The file has a
// top-level "records" key.
func LoadYAML(path string) ([]model.BillingRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", path)
	}

	var wrapper struct {
		Records []yamlRecord `yaml:"records"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "loader: parse %s", path)
	}

	records := make([]model.BillingRecord, 0, len(wrapper.Records))
	for i, yr := range wrapper.Records {
		days, err := ParseDays(yr.Days)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: record %d", i+1)
		}
		records = append(records, model.BillingRecord{
			UCI:          yr.UCI,
			LastName:     yr.LastName,
			FirstName:    yr.FirstName,
			AuthNumber:   yr.AuthNumber,
			SvcCode:      yr.SvcCode,
			SvcSubcode:   yr.SvcSubcode,
			SvcMonthYear: model.NormalizeMonth(yr.SvcMonthYear),
			SPNID:        yr.SPNID,
			ServiceDays:  days,
		})
	}
	return records, nil
}
