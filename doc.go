// Package mbtrn implements the ping-processing and fan-out core of a
// real-time bathymetric preprocessing / terrain-relative-navigation (TRN)
// bridge: it conditions multibeam sonar pings (gain gating, swath trim,
// median filtering, decimation), serialises the survivors into compact
// MB1 records, and hands those records to the publish and TRN subsystems.
//
// Subpackages own everything that sits around this core: decode (frame
// readers and the ping extractor), encode (the MB1/TRNU wire codecs),
// publish (the pub/sub server), trn (the TRN orchestrator), archive (the
// optional tee log, to a plain file or a TileDB array), pipeline (the controller loop) and search
// (datalist discovery).
package mbtrn
