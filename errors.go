/*
Copyright © 2026 the Impex authors.
This file is part of Impex.

Impex is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Impex is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Impex.  If not, see <http://www.gnu.org/licenses/>.
*/

package impex

import "fmt"

// ParseError is returned when a provider inventory description cannot be
// interpreted. It aborts the inventory build for that provider only.
type ParseError struct {
	Provider string
	Path     string // slash-separated path to the offending node
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("impex: parsing %s inventory at %s: %v", e.Provider, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingCredentialsError is returned when a restricted period or a
// user-scoped product is requested without valid credentials.
type MissingCredentialsError struct {
	Provider string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("impex: restricted or user-scoped request requires credentials, "+
		"please add your %s credentials", e.Provider)
}

// UnknownProductError is returned when a product identifier is absent from
// every flat inventory mapping. It is raised before any network activity.
type UnknownProductError struct {
	Provider string
	ID       string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("impex: unknown %s product %q", e.Provider, e.ID)
}
