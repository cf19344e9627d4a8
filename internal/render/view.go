package render

import (
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// expiringSoonDays is the IsExpiringSoon threshold.
const expiringSoonDays = 30

// View is the data every email template is executed with.
type View struct {
	CustomerName    template.HTML `json:"customerName"`
	ETCNumber       string        `json:"etcNumber"`
	CNIC            string        `json:"cnic"`
	ContactNumber   template.HTML `json:"contactNumber"`
	Email           string        `json:"email"`
	ReferenceNumber string        `json:"referenceNumber"`

	TotalVehicles int    `json:"totalVehicles"`
	TotalDevices  int    `json:"totalDevices"`
	TotalAmount   string `json:"totalAmount"`

	// Onboarding fields. Empty strings render nothing in {{if}} blocks.
	InstallationDate string        `json:"installationDate"`
	Credentials      template.HTML `json:"credentials"`
	AlertMobile      string        `json:"alertMobile"`
	ResidentCity     string        `json:"residentCity"`

	Notes template.HTML `json:"notes"`

	Vehicles     []VehicleView `json:"vehicles"`
	ServiceTypes string        `json:"serviceTypes"`

	ExpiryDate     string `json:"expiryDate"`
	IsExpiringSoon bool   `json:"isExpiringSoon"`
	CurrentDate    string `json:"currentDate"`
}

// VehicleView is one formatted vehicle line.
type VehicleView struct {
	Rank         string `json:"rank"`
	RegNumber    string `json:"regNumber"`
	Model        string `json:"model"`
	Package      string `json:"package"`
	Amount       string `json:"amount"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	TenureLength string `json:"tenureLength"`
}

// NewView builds the template data for rec.
func (e *Engine) NewView(rec *types.CustomerRecord) *View {
	now := e.now()

	v := &View{
		CustomerName:     e.md.Render(rec.Name),
		ETCNumber:        rec.BusinessKey,
		CNIC:             orNA(rec.NationalID),
		ContactNumber:    e.md.Render(rec.ContactNumber),
		Email:            orNA(rec.Email),
		ReferenceNumber:  e.prefix + rec.BusinessKey,
		TotalVehicles:    len(rec.Vehicles),
		TotalDevices:     len(rec.Vehicles),
		TotalAmount:      FormatCurrency(rec.TotalAmount),
		InstallationDate: orNA(rec.InstallationDate),
		Credentials:      e.md.Render(rec.Credentials),
		AlertMobile:      rec.AlertMobile,
		ResidentCity:     rec.ResidentCity,
		ServiceTypes:     serviceTypes(rec.Vehicles),
		ExpiryDate:       FormatDate(rec.EarliestExpiry),
		IsExpiringSoon:   expiringSoon(rec.EarliestExpiry, now),
		CurrentDate:      FormatDate(now),
	}
	if rec.HasNotes() {
		v.Notes = e.md.Render(rec.Notes)
	}

	v.Vehicles = make([]VehicleView, 0, len(rec.Vehicles))
	for _, veh := range rec.Vehicles {
		v.Vehicles = append(v.Vehicles, VehicleView{
			Rank:         veh.Rank,
			RegNumber:    veh.RegNumber,
			Model:        veh.Model,
			Package:      veh.PackageName,
			Amount:       FormatCurrency(veh.Amount),
			StartDate:    veh.StartDate,
			EndDate:      veh.EndDate,
			TenureLength: veh.TenureLength,
		})
	}
	return v
}

// serviceTypes joins the distinct package names, or "Standard Service".
func serviceTypes(vehicles []types.Vehicle) string {
	seen := types.NewOrderedSet()
	for _, v := range vehicles {
		if v.PackageName != "" {
			seen.Add(v.PackageName)
		}
	}
	if seen.Len() == 0 {
		return "Standard Service"
	}
	return strings.Join(seen.Values(), ", ")
}

// expiringSoon reports whether expiry is at most expiringSoonDays away,
// counting partial days as whole ones. Past expiries count as soon.
func expiringSoon(expiry *time.Time, now time.Time) bool {
	if expiry == nil {
		return false
	}
	days := math.Ceil(expiry.Sub(now).Hours() / 24)
	return days <= expiringSoonDays
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
