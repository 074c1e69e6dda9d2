package imagery

// ndviEvalscript computes per-pixel NDVI from Sentinel-2 L2A red (B04) and
// near-infrared (B08) bands and masks cloud, cloud-shadow and cirrus pixels
// using the scene classification layer.
const ndviEvalscript = `//VERSION=3
function setup() {
  return {
    input: [{ bands: ["B04", "B08", "SCL", "dataMask"] }],
    output: [
      { id: "ndvi", bands: 1, sampleType: "FLOAT32" },
      { id: "dataMask", bands: 1 }
    ]
  };
}

function evaluatePixel(s) {
  let ndvi = (s.B08 - s.B04) / (s.B08 + s.B04);
  let cloudy = s.SCL == 3 || s.SCL == 8 || s.SCL == 9 || s.SCL == 10;
  return {
    ndvi: [ndvi],
    dataMask: [s.dataMask == 1 && !cloudy ? 1 : 0]
  };
}
`
