package model

// PlayerStats summarises the accounts of one partition, or of the whole
// system once partial results are merged
type PlayerStats struct {
	NumAccounts   int64   `json:"num_accounts"`
	NumLoggedIn   int64   `json:"num_logged_in"`
	AvgNumLogins  float64 `json:"avg_num_logins"`
	AvgAccountAge float64 `json:"avg_account_age"` // seconds
}

// Merge folds another partial aggregate into s using a weighted running mean
func (s PlayerStats) Merge(other PlayerStats) PlayerStats {
	total := s.NumAccounts + other.NumAccounts
	if total == 0 {
		return PlayerStats{NumLoggedIn: s.NumLoggedIn + other.NumLoggedIn}
	}

	wSelf := float64(s.NumAccounts) / float64(total)
	wOther := float64(other.NumAccounts) / float64(total)

	return PlayerStats{
		NumAccounts:   total,
		NumLoggedIn:   s.NumLoggedIn + other.NumLoggedIn,
		AvgNumLogins:  s.AvgNumLogins*wSelf + other.AvgNumLogins*wOther,
		AvgAccountAge: s.AvgAccountAge*wSelf + other.AvgAccountAge*wOther,
	}
}
