// Command papers downloads past exam papers from a password-protected
// index, one concurrent task per academic year, and keeps a local history
// of every run.
//
//	papers fetch ~/papers --group y1 --from 2019
//	papers history
//	papers show <run-id>
package main
