/*
Package ddb is the DynamoDB localstore backend. It registers itself as the
"dynamodb" driver.

# Single-Table Layout

One collection occupies one meta item plus one partition per generation:

	PK=COLL#{collection}              SK=META            Gen=<current generation>
	PK=COLL#{collection}#GEN#{gen}    SK=REC#{id:010d}   record attributes
	PK=COLL#{collection}#GEN#{gen}    SK=KEY#{id:010d}   PrevKey, NextKey

Zero-padded sort keys make a key-ordered Query return records by identity.

# Transactions

A transaction buffers its writes and applies them on commit:

  - Small, non-clearing transactions go out as one TransactWriteItems call
    guarded by a ConditionCheck on Gen.
  - Clearing transactions, and those too large for one call, are written into
    generation Gen+1 and published by a conditional update of Gen.

Readers always resolve Gen first, so they switch from the old to the new
generation in one step. Superseded generations are deleted best-effort.
*/
package ddb
