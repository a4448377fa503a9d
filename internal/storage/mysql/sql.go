package mysql

// Each row contributes 10 placeholders; see listingColumns.
const insertListingsPrefix = "INSERT INTO listings\n" +
	"  (source, row_no, run_id, country, property_type, room_type, price, availability_365, host_name, name)\n" +
	"VALUES "

const listingPlaceholders = "(?,?,?,?,?,?,?,?,?,?)"

// Use VALUES(col) for broad compatibility with MySQL 5.7 and 8.0.
const insertListingsOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  run_id           = VALUES(run_id),\n" +
	"  country          = VALUES(country),\n" +
	"  property_type    = VALUES(property_type),\n" +
	"  room_type        = VALUES(room_type),\n" +
	"  price            = VALUES(price),\n" +
	"  availability_365 = VALUES(availability_365),\n" +
	"  host_name        = VALUES(host_name),\n" +
	"  name             = VALUES(name)\n"

const pruneListingsSQL = `
DELETE FROM listings
WHERE source = ? AND run_id <> ?
`

const insertRejectSQL = `
INSERT INTO import_rejects (run_id, row_no, reason)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE reason = VALUES(reason), seen_at = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// Stable order keeps snapshot fingerprints reproducible across loads.
const loadListingsSQL = `
SELECT
  country,
  property_type,
  room_type,
  price,
  availability_365,
  host_name,
  name
FROM listings
ORDER BY source, row_no
`
