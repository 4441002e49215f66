// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package integTests

import "flag"

var useLocalServer = flag.Bool("useLocalServer", false,
	"run integ test against a locally started example server")

var createServerWithPostgres = flag.Bool("createServerWithPostgres", false,
	"when not useLocalServer, offload step state to postgres instead of a sqlite file")
