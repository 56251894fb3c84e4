// Copyright 2023 Jigsaw Operations LLC
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
Package tlsfrag splits the first client payload of a TLS connection into multiple
synthetic [TLS records], so that a server name carried in plaintext inside the
[TLS Client Hello message] never appears whole inside a single record. Censors that
look for a blocked host name as a substring of one record fail to match it, unless
they reassemble the records first.

The fragmentation is driven by a [Matcher]: if the payload doesn't contain any
blocked pattern, it is forwarded untouched. Otherwise the payload is cut right after
its first NUL byte and the remaining bytes are randomly partitioned. Every record gets
a random minor version byte, so neither the split points nor the headers carry a
fixed signature.

The records are not valid TLS in general. The header always starts with the
handshake content type and major version 3, but the minor version is random and the
payload boundaries ignore the handshake message structure.

Only the first payload read from the client is inspected. If a Client Hello is
longer than that read, the rest of it is relayed as is, without fragmentation.

The size of that read is the caller's buffer size, so the body never exceeds it. A
caller that grows its buffer to the largest body seen will therefore not grow it
in practice: the largest body is at most the current buffer size.

[TLS Client Hello message]: https://datatracker.ietf.org/doc/html/rfc8446#section-4.1.2
[TLS records]: https://datatracker.ietf.org/doc/html/rfc8446#section-5.1
*/
package tlsfrag
