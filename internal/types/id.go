// README: Common identifier type shared across modules.
package types

// ID identifies users, products, and orders across service boundaries.
type ID string
