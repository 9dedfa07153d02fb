// Package priority ranks users for admission and force-stop decisions.
//
// There are three levels: Standard < Admin < Creator. The creator is a single
// configured identity, admins are a configured set, everyone else is standard.
package priority
