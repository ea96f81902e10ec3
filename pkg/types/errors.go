// SPDX-License-Identifier: MPL-2.0

package types

import "errors"

// Err is the root sentinel for every error produced by plumb's package
// management core. Domain packages derive their own sentinels from it with
// fmt.Errorf("%w: ...", types.Err) so that errors.Is(err, types.Err) matches
// any failure originating here, while more specific sentinels stay matchable.
var Err = errors.New("plumb")
