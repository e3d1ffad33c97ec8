package utils

const ShortSlashDateLayout = "2006/01/02"
const ShortDashDateLayout = "2006-01-02"

// BitcoinMaxSupply is the hard cap used for supply-share figures.
const BitcoinMaxSupply = 21_000_000
