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

// Package impex retrieves time-series scientific measurements from Impex
// web services. It discovers products through provider inventory trees,
// fetches arbitrary time ranges as bounded chunks through a cache and
// optional proxy, and merges the partial results into continuous
// variables.
package impex

// Version gives the latest release version.
const Version = "0.1.0"
