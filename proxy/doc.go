// Copyright 2025 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package proxy implements a local HTTP CONNECT proxy that hides blocked host names from
censors inspecting TLS handshakes.

For each accepted connection the [Server]:
 1. reads the CONNECT request and dials the target, replying "HTTP/1.1 200 OK\n\n"
    on success and closing the connection without a reply on any failure;
 2. for targets on port 443, reads the first TLS record header and the bytes after
    it, and forwards them with [tlsfrag.WriteFirstPayload], which splits them into
    several records if they contain a blocked pattern;
 3. relays bytes in both directions until both sides are done, and reports the
    tunnel counters once.

There is no authentication, and methods other than CONNECT are rejected.
*/
package proxy
