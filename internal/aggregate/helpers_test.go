package aggregate

import "database/sql"

func nullFloat(v float64, valid ...bool) sql.NullFloat64 {
	ok := true
	if len(valid) > 0 {
		ok = valid[0]
	}
	return sql.NullFloat64{Float64: v, Valid: ok}
}
